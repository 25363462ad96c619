/*
Package ports defines the driven ports (interfaces) of formbridge.

These interfaces decouple the mapping core from storage backends, definition
sources and the BPM engine itself.

# Key Interfaces

  - MappingLoader: retrieves mapping definitions (e.g., from Loam or Memory).
  - DraftStore: persists in-progress form drafts.
  - DistributedLocker: coordinates concurrent access to a draft or instance across replicas.
  - Dispatcher: delivers mapped parameters to the engine.
*/
package ports
