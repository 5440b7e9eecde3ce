package cache

import "github.com/bwmarrin/snowflake"

// ProgressSummaryKey identifies the cached progress summary of one work order.
func ProgressSummaryKey(orgID snowflake.ID, workOrderNumber string) string {
	return "progress_summary:" + orgID.String() + ":" + workOrderNumber
}
