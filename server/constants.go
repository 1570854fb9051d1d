package server

import (
	"time"

	"github.com/dotside-studios/nfc-juke/buildinfo"
)

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-juke._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

const (
	apiV1 = "/api/v1"

	// clientSendBuffer is the number of outbound messages queued per
	// WebSocket client before it is considered too slow and dropped.
	clientSendBuffer = 32

	writeWait = 10 * time.Second

	// injectRate is the per-IP limit on POST /api/v1/tag.
	injectRate = 10

	injectSource = "http-api"
)
