// Package transform provides the named value transforms referenced by mapping files.
//
// A Registry maps names to factories. Mapping files declare transforms as a name,
// a {name, args} object, or a list applied left to right:
//
//	fields:
//	  - field: monto
//	    parameter: pMonto
//	    transform: {name: fixed, args: {digits: 2}}
//	  - field: empleado
//	    parameter: pEmpleado
//	    transform: [trim, upper]
//
// Built-ins: upper, lower, trim, fixed, number, integer, bool, date, default, join, expr.
// Except for default, bool and expr, transforms pass nil and domain.Undefined through
// so the serializer can apply its null policy.
package transform
