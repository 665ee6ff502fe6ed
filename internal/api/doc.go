// Package api exposes the evaluator, optimizer and job queue over HTTP/JSON.
package api
