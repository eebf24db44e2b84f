// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Tgnexus is a Telegram chat assistant that posts a daily news digest.

Once a day, at the configured time, tgnexus fetches the configured RSS and
Atom feeds, asks Gemini to summarize the latest stories and posts the digest
to the primary chat. In between, it listens to chat messages and replies to
those that mention one of the trigger keywords, using the recent chat
history as context.

# Usage

	$ tgnexus [flags...]

Runtime configuration lives in the database, in five sections: telegram,
gemini, rss, prompts and rules. Sections that were never stored use
defaults. At startup, sections from the YAML file passed with -config
replace the stored ones, and secrets missing from the database are taken
from the TELEGRAM_TOKEN, TELEGRAM_CHAT_ID and GEMINI_API_KEY environment
variables. A .env file in the working directory is loaded first.

If -host is set, tgnexus registers a webhook at https://<host>/telegram.
Otherwise it long-polls Telegram for updates.

# Environment

	TELEGRAM_SECRET: secret token that webhook requests must carry; required with -host
	ADMIN_TOKEN: bearer token for the /admin/ and /debug/ endpoints
	DATABASE_URL: PostgreSQL connection string; SQLite is used if empty

# Admin API

All endpoints require the "Authorization: Bearer <ADMIN_TOKEN>" header.

	POST /admin/digest: run the digest cycle now
	GET /admin/config: show the configuration, with secrets masked
	PUT /admin/config/{section}: replace a configuration section
	POST /admin/gemini/test: check that Gemini works with the stored key
	GET /admin/digests?limit=N: list archived digests, newest first

# Rules

The rules section can hold a Starlark program that defines a keep function.
It is called with every fetched item and must return a bool:

	def keep(item):
	    return "sponsored" not in item.title.lower()

Items have title, link, summary, source and published attributes.
*/
package main

import (
	_ "embed"

	"github.com/faye25tom/TGNexus/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
