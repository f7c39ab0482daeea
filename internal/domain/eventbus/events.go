package eventbus

// 扫描流水线事件主题
const (
	// TopicFrame carries scan.FrameResult.
	TopicFrame = "scan:frame"
	// TopicScanEvent carries scan.ScanEvent.
	TopicScanEvent = "scan:event"
	// TopicThroughput carries a float64 frames-per-second estimate.
	TopicThroughput = "scan:throughput"
	// TopicError carries the error message string.
	TopicError = "scan:error"
)

// droppable topics may be discarded when the queue is full; the latest
// frame or rate supersedes anything lost.
func droppable(topic string) bool {
	return topic == TopicFrame || topic == TopicThroughput
}
