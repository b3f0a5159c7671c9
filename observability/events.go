package observability

// EventType constants for the durable-execution runtime. Each names a
// transition in the operation lifecycle, the suspension protocol, or the
// checkpoint pipeline. These are the only EventType constants this module
// defines.
const (
	EventOperationStart     EventType = "operation.start"
	EventOperationSucceed   EventType = "operation.succeed"
	EventOperationFail      EventType = "operation.fail"
	EventOperationRetry     EventType = "operation.retry"
	EventOperationReplay    EventType = "operation.replay"
	EventSuspendFired       EventType = "activity.suspend"
	EventActivityRegister   EventType = "activity.register"
	EventActivityDeregister EventType = "activity.deregister"
	EventBatchFlush         EventType = "batch.flush"
	EventBatchFlushFailed   EventType = "batch.flush_failed"
	EventPollTick           EventType = "poll.tick"
	EventExecutorSuspended  EventType = "executor.suspended"
	EventExecutorSucceeded  EventType = "executor.succeeded"
	EventExecutorFailed     EventType = "executor.failed"
)
