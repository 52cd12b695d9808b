// Package logging provides leveled logging on top of the standard log
// package. The level is read once from the LOG_LEVEL and DEBUG environment
// variables; tests may override it with SetLevel.
package logging
