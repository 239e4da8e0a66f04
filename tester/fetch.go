package tester

import (
	"net/http"

	"github.com/backendtester/harness/wire"
)

// FetchHandler answers URL fetches in place of the network while it is installed.
type FetchHandler interface {
	Content(req *wire.FetchRequest) ([]byte, error)
	StatusCode(req *wire.FetchRequest) int
}

// StaticFetchHandler answers every fetch with the same content. A zero Status means 200.
type StaticFetchHandler struct {
	Body   []byte
	Status int
}

func (h StaticFetchHandler) Content(*wire.FetchRequest) ([]byte, error) {
	return h.Body, nil
}

func (h StaticFetchHandler) StatusCode(*wire.FetchRequest) int {
	if h.Status == 0 {
		return http.StatusOK
	}
	return h.Status
}

// FetchHandlerFuncs builds a FetchHandler from functions. A nil ContentFunc yields empty
// content, and a nil StatusCodeFunc yields 200.
type FetchHandlerFuncs struct {
	ContentFunc    func(req *wire.FetchRequest) ([]byte, error)
	StatusCodeFunc func(req *wire.FetchRequest) int
}

func (f FetchHandlerFuncs) Content(req *wire.FetchRequest) ([]byte, error) {
	if f.ContentFunc == nil {
		return nil, nil
	}
	return f.ContentFunc(req)
}

func (f FetchHandlerFuncs) StatusCode(req *wire.FetchRequest) int {
	if f.StatusCodeFunc == nil {
		return http.StatusOK
	}
	return f.StatusCodeFunc(req)
}
