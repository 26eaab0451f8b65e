package handler

import (
	"os"
	"strconv"

	"github.com/devnode/goserver/internal/fsutil"
	"github.com/devnode/goserver/internal/httpmsg"
)

// File serves, creates, or removes a single filesystem path, dispatching
// on the request method the way original_source/FileHandler.cpp does.
type File struct {
	Path string

	fi     *fsutil.FileInfo
	active bool
}

func (h *File) Start(ex *Exchange) Result {
	switch ex.Request.Method {
	case httpmsg.MethodGET:
		return h.handleGet(ex)
	case httpmsg.MethodHEAD:
		return h.handleHead(ex)
	case httpmsg.MethodPOST:
		return h.handlePost(ex)
	case httpmsg.MethodPUT:
		return h.handlePut(ex)
	case httpmsg.MethodDELETE:
		return h.handleDelete(ex)
	default:
		ex.ExtraHeaders = httpmsg.Headers{{Key: "Allow", Val: "GET, HEAD, POST, PUT, DELETE"}}
		return ex.Fail(httpmsg.StatusMethodNotAllowed)
	}
}

func (h *File) Resume(ex *Exchange) Result {
	if !h.active || ex.Pump == nil {
		return Done
	}
	done, err := ex.Pump.Step(ex.SockFd)
	if err != nil {
		h.fi.Close()
		h.active = false
		return ex.Fail(httpmsg.StatusInternalServerError)
	}
	if !done {
		return WouldBlock
	}
	h.fi.Close()
	h.active = false
	// The header block was already flushed before streaming began;
	// clear it so the connection doesn't try to resend it now that
	// Resume reports Done.
	ex.WriteBuf = nil
	return Done
}

func (h *File) handleGet(ex *Exchange) Result {
	fi, err := fsutil.OpenFile(h.Path)
	if err != nil {
		return ex.Fail(httpmsg.StatusNotFound)
	}

	start, end := int64(0), fi.Size-1
	partial := false
	if rng, ok := ex.Request.Headers.Get("Range"); ok {
		s, e, rerr := fsutil.ParseRange(rng, fi.Size)
		if rerr != nil {
			fi.Close()
			ex.ExtraHeaders = httpmsg.Headers{{Key: "Content-Range", Val: "bytes */" + strconv.FormatInt(fi.Size, 10)}}
			return ex.Fail(httpmsg.StatusRangeNotSatisfiable)
		}
		start, end, partial = s, e, true
	}

	headers := httpmsg.Headers{{Key: "Content-Type", Val: fi.ContentType}}
	status := httpmsg.StatusOK
	if partial {
		status = httpmsg.StatusPartialContent
		headers = append(headers,
			httpmsg.Header{Key: "Content-Length", Val: strconv.FormatInt(end-start+1, 10)},
			httpmsg.Header{Key: "Content-Range", Val: "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(fi.Size, 10)},
		)
	} else {
		headers = append(headers, httpmsg.Header{Key: "Content-Length", Val: strconv.FormatInt(fi.Size, 10)})
	}

	ex.WriteBuf = httpmsg.BuildStatusAndHeaders(nil, ex.Version, status, headers)
	h.fi = fi
	h.active = true
	ex.Pump = fsutil.NewPump(fi, start, end)
	return WouldBlock
}

func (h *File) handleHead(ex *Exchange) Result {
	fi, err := fsutil.OpenFile(h.Path)
	if err != nil {
		return ex.Fail(httpmsg.StatusNotFound)
	}
	defer fi.Close()

	status := httpmsg.StatusOK
	headers := httpmsg.Headers{{Key: "Content-Type", Val: fi.ContentType}}
	if rng, ok := ex.Request.Headers.Get("Range"); ok {
		s, e, rerr := fsutil.ParseRange(rng, fi.Size)
		if rerr != nil {
			ex.ExtraHeaders = httpmsg.Headers{{Key: "Content-Range", Val: "bytes */" + strconv.FormatInt(fi.Size, 10)}}
			return ex.Fail(httpmsg.StatusRangeNotSatisfiable)
		}
		status = httpmsg.StatusPartialContent
		headers = append(headers,
			httpmsg.Header{Key: "Content-Length", Val: strconv.FormatInt(e-s+1, 10)},
			httpmsg.Header{Key: "Content-Range", Val: "bytes " + strconv.FormatInt(s, 10) + "-" + strconv.FormatInt(e, 10) + "/" + strconv.FormatInt(fi.Size, 10)},
		)
	} else {
		headers = append(headers, httpmsg.Header{Key: "Content-Length", Val: strconv.FormatInt(fi.Size, 10)})
	}
	ex.WriteBuf = httpmsg.BuildStatusAndHeaders(nil, ex.Version, status, headers)
	return Done
}

// handlePost echoes the uploaded body back with a summary, matching the
// teacher's placeholder POST behaviour in FileHandler::handlePost.
func (h *File) handlePost(ex *Exchange) Result {
	body := "POST request processed successfully\r\n" +
		"URI: " + ex.Request.RawURI + "\r\n" +
		"Content received: " + strconv.Itoa(len(ex.Request.Body)) + " bytes\r\n" +
		"Data:\r\n" + string(ex.Request.Body)
	headers := httpmsg.Headers{
		{Key: "Content-Type", Val: "text/plain; charset=utf-8"},
		{Key: "Content-Length", Val: strconv.Itoa(len(body))},
	}
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, httpmsg.StatusCreated, headers, []byte(body))
	return Done
}

// handlePut writes the request body to Path, creating it if necessary.
// Ported from original_source/FileHandler.cpp's handlePut, using an
// O_EXCL probe to distinguish "created" (201) from "overwritten" (200).
func (h *File) handlePut(ex *Exchange) Result {
	created := false
	f, err := os.OpenFile(h.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err == nil {
		created = true
	} else if os.IsExist(err) {
		f, err = os.OpenFile(h.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	}
	if err != nil {
		return ex.Fail(httpmsg.StatusInternalServerError)
	}

	n, werr := f.Write(ex.Request.Body)
	f.Close()
	if werr != nil || n != len(ex.Request.Body) {
		os.Remove(h.Path)
		return ex.Fail(httpmsg.StatusInternalServerError)
	}

	status := httpmsg.StatusOK
	if created {
		status = httpmsg.StatusCreated
	}
	body := "PUT request processed successfully\r\n" +
		"Resource: " + h.Path + "\r\n" +
		"Bytes written: " + strconv.Itoa(n) + "\r\n"
	headers := httpmsg.Headers{
		{Key: "Content-Type", Val: "text/plain; charset=utf-8"},
		{Key: "Content-Length", Val: strconv.Itoa(len(body))},
	}
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, status, headers, []byte(body))
	return Done
}

// handleDelete removes a regular file at Path. Ported from
// original_source/FileHandler.cpp's handleDelete.
func (h *File) handleDelete(ex *Exchange) Result {
	st, err := os.Stat(h.Path)
	if err != nil {
		return ex.Fail(httpmsg.StatusNotFound)
	}
	if !st.Mode().IsRegular() {
		return ex.Fail(httpmsg.StatusForbidden)
	}
	if err := os.Remove(h.Path); err != nil {
		return ex.Fail(httpmsg.StatusInternalServerError)
	}
	ex.WriteBuf = httpmsg.BuildResponse(ex.Version, httpmsg.StatusNoContent, httpmsg.Headers{{Key: "Content-Length", Val: "0"}}, nil)
	return Done
}
