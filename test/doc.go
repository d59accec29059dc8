// Package test contains the integration tests of the admin against postgres and
// kafka containers
//
// Run them with docker available:
//
//	go test -tags integration ./test/
package test
