// Command emojictl manages the images of an emoji server.
//
// The server base URL comes from the --server flag, or the EMOJI_SERVER
// environment variable, or defaults to http://localhost:5000. Basic auth
// credentials, if the server requires them, are read from EMOJI_USER and
// EMOJI_PASSWORD.
//
// Examples:
//
//	emojictl put smile.png --size 24
//	emojictl get smile --size 24 -o smile.png
//	emojictl rm smile
//	emojictl ls
//	emojictl blobs --size full
//	emojictl init
package main // import "github.com/nicolagi/emoji/cmd/emojictl"
