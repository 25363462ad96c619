/*
Package domain contains the core types and the parameter exchange logic of formbridge.

It converts flat form data into the ordered parameter lists a BPM engine expects.
This package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - FormData: the field name to value map produced by form state.
  - Parameter: a named string value tagged Input or Variable, sent to the engine.
  - FieldMapping: the ordered rules used to select, rename and transform fields.
  - Serializer: the explicit value-to-string conversion applied to every parameter.
  - Draft: in-progress form state kept for a dashboard session.
  - Submission / Receipt: a mapped form on its way to the engine, and the engine's answer.

# Exchange Operations

  - ToAllParameters: every field, as Input parameters.
  - ToSelectedParameters: only mapped fields, renamed, transformed and tagged.
  - MergeParameterBatches: visible batch first, hidden batches after, no deduplication.
*/
package domain
