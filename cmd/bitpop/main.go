// Package main provides the CLI entrypoint for bitpop.
package main

func main() {
	Execute()
}
