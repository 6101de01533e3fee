package investigation

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// timeLayout is the timestamp format used in persisted documents.
const timeLayout = time.RFC3339
