// Package expr compiles user-supplied cue expressions into callable values.
//
// Expression source text is the body of a Lua function. At compile time the
// body is wrapped and loaded into its own interpreter; invoking the result is
// a plain function call that returns a value or an error. The function sees
// these names:
//
//	status     table describing the triggering update (player, beat, playing, ...)
//	cue        table with uuid, start, end, section, comment, hue
//	container  the container name
//	locals     scratch table shared by the expressions of one container
//	globals    scratch table shared by the whole show
//
// Changes an expression makes to locals and globals are copied back into the
// Go-side Scratch once the call returns.
package expr
