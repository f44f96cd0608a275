// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/bureau-foundation/mirror/lib/rendezvous"
)

// JoinState is what the join page shows.
type JoinState string

const (
	// JoinMissing: the link carried no peerId at all.
	JoinMissing JoinState = "missing"

	// JoinUnusable: a peerId was given but is not a valid identity.
	JoinUnusable JoinState = "unusable"

	// JoinReady: the link names a valid host.
	JoinReady JoinState = "ready"
)

// joinView feeds the join page template.
type joinView struct {
	State    JoinState
	Peer     string
	Link     string
	ThisHost bool
}

var joinTemplate = template.Must(template.New("join").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Instant Mirror: join</title>
</head>
<body>
<h1>Join</h1>
{{- if eq .State "missing"}}
<p>On the other device, run <code>mirror host</code> and scan the QR code it shows. This page needs the link from that code.</p>
{{- else if eq .State "unusable"}}
<p>This link or code is not usable. Use the QR code from the host device to join.</p>
{{- else}}
<p>Host <strong>{{.Peer}}</strong>{{if .ThisHost}} is running here{{end}}.</p>
<p>To mirror with it, run:</p>
<pre>mirror join '{{.Link}}'</pre>
{{- end}}
</body>
</html>
`))

// joinPage renders the page a scanned join link opens. A missing
// peerId and an unusable one are distinct states; both answer 400.
func (r *routes) joinPage(writer http.ResponseWriter, request *http.Request) {
	view := joinView{State: JoinReady}

	raw := request.URL.Query().Get(rendezvous.QueryParameter)
	peer, err := rendezvous.ParseReference(request.URL.String())
	switch {
	case raw == "" || errors.Is(err, rendezvous.ErrMissing):
		view.State = JoinMissing
	case err != nil:
		view.State = JoinUnusable
	default:
		view.Peer = peer
		view.ThisHost = peer == r.config.HostPeer
		view.Link = rendezvous.Encode(peer, r.config.LocalAddress().URL)
	}

	status := http.StatusOK
	if view.State != JoinReady {
		status = http.StatusBadRequest
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("X-Join-State", string(view.State))
	writer.WriteHeader(status)
	if err := joinTemplate.Execute(writer, view); err != nil {
		r.logger.Debug("rendering join page failed", "error", err)
	}
}
