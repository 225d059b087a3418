package ipc

import (
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/router"
)

// Response is the single frame the adapter writes back for every request frame it reads, mirroring the shape of
// router.Result but adding the error's Kind so a local caller can branch on it without parsing Message text.
type Response struct {
	Success       bool               `json:"success"`
	Response      *envelope.Envelope `json:"response,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Error         *ErrorBody         `json:"error,omitempty"`
}

// ErrorBody carries a rejected request's error code and message, matching httputil.ErrorBody's shape so the REST
// and local IPC adapters report failures identically.
type ErrorBody struct {
	Code    ferror.Kind `json:"code"`
	Message string      `json:"message"`
}

func successResponse(result router.Result) Response {
	if !result.Success {
		code := ferror.KindInternal
		if result.TimedOut {
			code = ferror.KindTimeout
		}
		return Response{
			Success:       false,
			CorrelationID: result.CorrelationID,
			Error:         &ErrorBody{Code: code, Message: result.Error},
		}
	}
	resp := result.Response
	return Response{
		Success:       true,
		Response:      &resp,
		CorrelationID: result.CorrelationID,
	}
}

func errorResponse(err *ferror.Error) Response {
	return Response{
		Success: false,
		Error:   &ErrorBody{Code: err.Kind, Message: err.Message},
	}
}
