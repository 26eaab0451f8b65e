package handler

import "github.com/devnode/goserver/internal/httpmsg"

// Redirect answers with a Location header and no body. Ported from
// original_source/src/handlers/RedirectHandler.cpp.
type Redirect struct {
	Code   httpmsg.Status
	Target string
}

func (h *Redirect) Start(ex *Exchange) Result {
	headers := httpmsg.Headers{
		{Key: "Location", Val: h.Target},
		{Key: "Content-Length", Val: "0"},
	}
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, h.Code, headers, nil)
	return Done
}

func (h *Redirect) Resume(ex *Exchange) Result { return Done }
