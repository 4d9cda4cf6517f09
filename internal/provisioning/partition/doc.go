// Package partition splits the deployed fleet into groups of a fixed size.
package partition
