package domain

import (
	"fmt"
	"regexp"
)

// ValidateUpload checks an incoming upload against §4.1's constraints and
// classifies the rejection. A nil return means the upload may proceed.
func ValidateUpload(contentType string, sizeBytes int64, quotaRemaining int64) (FileCategory, error) {
	category, ok := CategoryFor(contentType)
	if !ok {
		return "", New(KindValidation, TypeUnsupportedMediaType,
			fmt.Sprintf("content type %q is not supported", contentType))
	}

	limit := SizeLimit(category)
	if sizeBytes > limit {
		return category, New(KindValidation, TypeFileTooLarge,
			fmt.Sprintf("size %d exceeds limit %d for %s", sizeBytes, limit, category))
	}

	if quotaRemaining >= 0 && sizeBytes > quotaRemaining {
		return category, New(KindValidation, TypeQuotaExceeded, "tenant storage quota exceeded")
	}

	return category, nil
}

// sanitizeKeyChar is anything outside [A-Za-z0-9._-] in a storage key
// filename component (§6).
var sanitizeKeyChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename replaces every character not in [A-Za-z0-9._-] with '_'.
func SanitizeFilename(name string) string {
	return sanitizeKeyChar.ReplaceAllString(name, "_")
}

// StorageKey composes the object-store key schema (§6):
// {tenant_id}/{yyyy}/{mm}/{document_id}/{sanitized_filename}.
func StorageKey(tenantID string, year int, month int, documentID, filename string) string {
	return fmt.Sprintf("%s/%04d/%02d/%s/%s", tenantID, year, month, documentID, SanitizeFilename(filename))
}
