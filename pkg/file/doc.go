// Package file stores opaque blobs under slash-separated keys, on the local
// filesystem or in Amazon S3 and S3-compatible services.
//
//	storage, err := file.NewS3Storage(ctx, file.S3Config{
//		Bucket: "stories",
//		Region: "eu-west-1",
//	})
//	if err != nil {
//		return err
//	}
//	err = storage.Put(ctx, "stories/2026/05/id.json", "application/json", data)
//
// Keys are validated before use: absolute keys are made relative and keys
// containing ".." are rejected with ErrInvalidPath. S3 errors are mapped onto
// the package errors (NoSuchKey to ErrFileNotFound, AccessDenied to
// ErrAccessDenied and so on).
package file
