package upload

// Labels are the templates of user-visible messages. Replace them to
// translate the messages.
type Labels struct {
	ErrorMaxFilesReached    string
	ErrorFileTooLarge       string
	ErrorFileTypeNotAllowed string
	ErrorNoFilesToUpload    string
	ErrorUploadInProgress   string
	ErrorReadingFile        string
	ErrorUploadingFile      string
	ErrorDeletingFile       string
	ErrorDownloadingFile    string
	ErrorFileNotFound       string
	ImageCompressed         string
	ImageCompressionFailed  string
	ErrorDuringCompression  string
}

// EnglishLabels returns the default English messages
func EnglishLabels() Labels {
	return Labels{
		ErrorMaxFilesReached:    "Maximum number of files (%d) reached.",
		ErrorFileTooLarge:       "File '%s' exceeds maximum size of %s.",
		ErrorFileTypeNotAllowed: "File type '%s' is not allowed for file '%s'.",
		ErrorNoFilesToUpload:    "No files to upload.",
		ErrorUploadInProgress:   "Upload already in progress.",
		ErrorReadingFile:        "Error reading file '%s': %s",
		ErrorUploadingFile:      "Error uploading file '%s': %s",
		ErrorDeletingFile:       "Failed to delete file '%s' from storage.",
		ErrorDownloadingFile:    "Error downloading file '%s': %s",
		ErrorFileNotFound:       "File '%s' not found.",
		ImageCompressed:         "Image '%s' was compressed: %s → %s",
		ImageCompressionFailed:  "Image '%s' could not be compressed sufficiently. %s",
		ErrorDuringCompression:  "Error compressing '%s': %s",
	}
}
