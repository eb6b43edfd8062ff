// Package authz contains the pure authorization predicates. Every
// function is total over its inputs, performs no I/O, and evaluates a
// verified identity snapshot only; callers decide what a false result
// means at their boundary.
package authz
