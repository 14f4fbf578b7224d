package emoji

import (
	"fmt"
	"strings"
)

// Asset is a servable image.
type Asset struct {
	Name      string
	Size      Size
	Extension string
	Data      []byte
}

// ContentType is the MIME type to serve the asset with.
func (a Asset) ContentType() string {
	return "image/" + a.Extension
}

// Filename is the name of the asset's object in the blob store.
func Filename(name, extension string) string {
	return name + "." + extension
}

// SplitFilename splits a filename such as "smile.png" on its last dot.
func SplitFilename(filename string) (name, extension string, err error) {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return "", "", fmt.Errorf("%q: name and extension required: %w", filename, ErrInvalidInput)
	}
	name, extension = filename[:i], strings.ToLower(filename[i+1:])
	if err := validateName(name); err != nil {
		return "", "", err
	}
	if err := validateExtension(extension); err != nil {
		return "", "", err
	}
	return name, extension, nil
}

// NormalizeExtension maps an extension to the image MIME subtype it is
// served as.
func NormalizeExtension(extension string) string {
	if extension == "jpg" {
		return "jpeg"
	}
	return extension
}

// Key is the index key of a rendition: the bare name for the full size,
// "name:size" otherwise.
func Key(name string, size Size) string {
	if size == SizeFull {
		return name
	}
	return name + ":" + size.String()
}

// NameFromKey strips the size suffix from an index key.
func NameFromKey(key string) string {
	name, _, _ := strings.Cut(key, ":")
	return name
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name required: %w", ErrInvalidInput)
	case strings.ContainsAny(name, `./\:`):
		return fmt.Errorf("%q: name must not contain '.', '/', '\\' or ':': %w", name, ErrInvalidInput)
	}
	return nil
}

func validateExtension(extension string) error {
	switch {
	case extension == "":
		return fmt.Errorf("extension required: %w", ErrInvalidInput)
	case strings.ContainsAny(extension, `./\:`):
		return fmt.Errorf("%q: malformed extension: %w", extension, ErrInvalidInput)
	}
	return nil
}
