package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "docseq/internal/core/context"
)

// Headers that override how a request draws numbers.
const (
	HeaderSequenceDate      = "X-Sequence-Date"
	HeaderSequenceDateRange = "X-Sequence-Date-Range"
	HeaderOrganizationID    = "X-Organization-ID"
	HeaderTimezone          = "X-Timezone"
)

// SequenceOverrides copies the override headers into the request context.
// Values are validated by the sequence service before any number is drawn.
func SequenceOverrides() gin.HandlerFunc {
	return func(c *gin.Context) {
		o := appctx.SequenceOverrides{
			Date:      c.GetHeader(HeaderSequenceDate),
			DateRange: c.GetHeader(HeaderSequenceDateRange),
			OrgID:     c.GetHeader(HeaderOrganizationID),
			TimeZone:  c.GetHeader(HeaderTimezone),
		}
		if o != (appctx.SequenceOverrides{}) {
			c.Request = c.Request.WithContext(appctx.WithSequenceOverrides(c.Request.Context(), o))
		}
		c.Next()
	}
}

func overridesFingerprint(c *gin.Context) string {
	o := appctx.GetSequenceOverrides(c.Request.Context())
	if o == (appctx.SequenceOverrides{}) {
		return ""
	}
	return " [" + o.Date + "|" + o.DateRange + "|" + o.OrgID + "|" + o.TimeZone + "]"
}
