// Package main is the entry point for the API server.
package main

func main() {
	Execute()
}
