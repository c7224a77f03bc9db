package main

// General API documentation for swaggo. The generated document lives in
// internal/httpapi/docs.
//
// @title           imgload API
// @version         1.0
// @description     HTTP API for progressive image loading and caching.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
