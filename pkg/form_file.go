package pkg

import (
	"errors"
	"mime/multipart"
	"net/http"
)

// allowed multipart overhead on top of the max file size
const formOverhead = 1 << 20

var (
	ErrNoFormFile      = errors.New("no file provided")
	ErrFormTooLarge    = errors.New("request body too large")
	ErrInvalidFormData = errors.New("invalid multipart form")
)

// ReadFormFile parses a multipart request body capped at maxSize (plus form overhead)
// and returns the file under the given field. Empty files count as missing.
func ReadFormFile(w http.ResponseWriter, r *http.Request, field string, maxSize int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, nil, ErrFormTooLarge
		}
		return nil, nil, errors.Join(ErrInvalidFormData, err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, ErrNoFormFile
		}
		return nil, nil, errors.Join(ErrInvalidFormData, err)
	}
	if header.Size == 0 {
		_ = file.Close()
		return nil, nil, ErrNoFormFile
	}

	return file, header, nil
}
