package media

import "fmt"

// DownloadError is a permanent failure to fetch an image. It fails the whole
// batch.
type DownloadError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image download failed for %s: http status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("image download failed for %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// CompressionError is an encoder failure. The pipeline recovers from it by
// keeping the original bytes.
type CompressionError struct {
	URL    string
	Format Format
	Err    error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("image compression to %s failed for %s: %v", e.Format, e.URL, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// ProcessError is an image that could not be decoded at all. The image is
// dropped from the batch.
type ProcessError struct {
	URL string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("image processing failed for %s: %v", e.URL, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// UploadError is a failed object-store write. During media processing the
// image is dropped; during persistence it propagates.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload failed for object %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
