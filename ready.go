package tasks

// Ready combines a Producer's TASK_QUEUES key and a Consumer's
// TASK_CONSUMER key into the single readiness map described in
// SPEC_FULL.md §6, grounded on original_source/tasks/__init__.py:ready.
// Either argument may be nil, reporting ERROR for its key.
func Ready(p *Producer, c *Consumer) map[string]string {
	r := map[string]string{
		"TASK_QUEUES":   "ERROR",
		"TASK_CONSUMER": "ERROR",
	}
	if p != nil {
		r["TASK_QUEUES"] = p.Ready()
	}
	if c != nil {
		r["TASK_CONSUMER"] = c.Ready()
	}
	return r
}
