package main

// General API documentation for swaggo. Run `swag init -g cmd/llamaworker/docs.go`
// to regenerate the docs package.
//
// @title           llamaworker API
// @version         1.0
// @description     HTTP host for a sandboxed llama inference worker.
//
// @contact.name   llamaworker maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
