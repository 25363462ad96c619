// Package mapping compiles mapping definitions into plans that turn form data
// into engine parameters.
//
// A definition names the engine event, the visible field rules and the hidden
// parameters appended after them:
//
//	name: reembolso
//	event: SolicitudReembolso
//	fields:
//	  - {field: empleado, parameter: pEmpleado, transform: upper}
//	  - {field: monto, parameter: pMonto, transform: {fixed: {digits: 2}}}
//	  - {field: aprobado, parameter: vAprobado, variable: true, transform: {bool: {"true": SI, "false": NO}}}
//	hidden:
//	  - {parameter: pFecha, source: timestamp, transform: date}
//	  - {parameter: pUsuario, source: user}
//	schema:
//	  empleado: string
//	  monto: float
//
// Hidden values are mapped with the same exchange rules as visible fields,
// keyed by their parameter name, then merged after the visible batch.
package mapping
