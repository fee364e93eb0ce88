package httpapi

import "time"

const timeRFC3339 = time.RFC3339

func nowUTC() time.Time { return time.Now().UTC() }
