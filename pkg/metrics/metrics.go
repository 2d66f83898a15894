package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foco_mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue", "status"},
	)

	// LLM 调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foco_llm_call_latency_ms",
			Help:    "Chat completion call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foco_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foco_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 任务创建计数
	TaskCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_task_created_total",
			Help: "Total number of tasks created",
		},
		[]string{"source"}, // source: api, voice, import
	)

	// 语音意图计数
	VoiceIntentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_voice_intent_total",
			Help: "Voice commands processed, by parsed intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	// 上传计数
	UploadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_upload_total",
			Help: "File uploads by outcome",
		},
		[]string{"status"},
	)

	// 上传字节数
	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foco_upload_bytes_total",
			Help: "Bytes stored through the upload service",
		},
	)

	// 通知发送计数
	NotificationSentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_notification_sent_total",
			Help: "Notifications delivered, by type and channel",
		},
		[]string{"type", "channel"},
	)

	// 分析缓存命中
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foco_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue, status string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue, status).Observe(float64(duration.Milliseconds()))
}

// RecordLLMCallLatency 记录 LLM 调用延迟
func RecordLLMCallLatency(model, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementTaskCreated 增加任务创建计数
func IncrementTaskCreated(source string) {
	TaskCreatedCount.WithLabelValues(source).Inc()
}

// IncrementVoiceIntent 增加语音意图计数
func IncrementVoiceIntent(intent, outcome string) {
	VoiceIntentCount.WithLabelValues(intent, outcome).Inc()
}

// RecordUpload 记录上传结果
func RecordUpload(status string, size int64) {
	UploadCount.WithLabelValues(status).Inc()
	if status == "success" && size > 0 {
		UploadBytes.Add(float64(size))
	}
}

// IncrementNotificationSent 增加通知发送计数
func IncrementNotificationSent(notificationType, channel string) {
	NotificationSentCount.WithLabelValues(notificationType, channel).Inc()
}

// RecordCacheLookup 记录缓存命中/未命中
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
