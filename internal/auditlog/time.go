package auditlog

import "time"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

const timeLayout = time.RFC3339
