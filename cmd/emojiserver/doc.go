// Command emojiserver serves emoji images over HTTP.
//
// Images are kept in a blob store (a directory on disk, S3 buckets, or
// memory), one bucket per configured size, and served from an index (boltdb,
// pebble, DynamoDB, or memory) through an in-process cache. After pointing
// the server at a blob store with existing images, POST /init (or set
// init_on_start) to load them into the index.
//
// Configuration is read from the rjson file given by -config, by default
// $HOME/lib/emoji/emojiserver.config. All properties are optional:
//
//	{
//		address: ":5000"
//		sizes: ["full", "24"]
//		blobs: {
//			type: "s3"
//			region: "eu-west-1"
//			buckets: {full: "emojis", "24": "emojis-24"}
//		}
//		index: {type: "bolt", path: "$HOME/lib/emoji/index.db"}
//		auth: {user: "emoji", password_hash: "$2a$10$..."}
//	}
//
// The PORT environment variable, if set, overrides the port to listen on.
package main // import "github.com/nicolagi/emoji/cmd/emojiserver"
