package store

// Column names double as public filter names, keep them short and stable.

// Pageview is a row of the analytics table.
type Pageview struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ProjectID string `gorm:"column:pid;not null;index:idx_analytics_pid_created,priority:1;index:idx_analytics_pid_psid,priority:1"`
	SessionID string `gorm:"column:psid;not null;index:idx_analytics_pid_psid,priority:2"`
	Page      string `gorm:"column:pg"`
	Host      string `gorm:"column:host"`
	Referrer  string `gorm:"column:ref"`
	Source    string `gorm:"column:so"`
	Medium    string `gorm:"column:me"`
	Campaign  string `gorm:"column:ca"`
	Locale    string `gorm:"column:lc"`
	Device    string `gorm:"column:dv"`
	Browser   string `gorm:"column:br"`
	OS        string `gorm:"column:os"`
	Country   string `gorm:"column:cc"`
	Region    string `gorm:"column:rg"`
	City      string `gorm:"column:ct"`
	Meta      string `gorm:"column:meta;not null;default:'{}'"`
	Unique    int    `gorm:"column:uniq;not null;default:0"`
	Created   int64  `gorm:"column:created;not null;index:idx_analytics_pid_created,priority:2"`
}

func (Pageview) TableName() string { return TableAnalytics }

// CustomEvent is a row of the custom events table.
type CustomEvent struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ProjectID string `gorm:"column:pid;not null;index:idx_custom_pid_created,priority:1"`
	SessionID string `gorm:"column:psid;not null"`
	Name      string `gorm:"column:ev;not null"`
	Page      string `gorm:"column:pg"`
	Host      string `gorm:"column:host"`
	Referrer  string `gorm:"column:ref"`
	Source    string `gorm:"column:so"`
	Medium    string `gorm:"column:me"`
	Campaign  string `gorm:"column:ca"`
	Locale    string `gorm:"column:lc"`
	Device    string `gorm:"column:dv"`
	Browser   string `gorm:"column:br"`
	OS        string `gorm:"column:os"`
	Country   string `gorm:"column:cc"`
	Region    string `gorm:"column:rg"`
	City      string `gorm:"column:ct"`
	Meta      string `gorm:"column:meta;not null;default:'{}'"`
	Unique    int    `gorm:"column:uniq;not null;default:0"`
	Created   int64  `gorm:"column:created;not null;index:idx_custom_pid_created,priority:2"`
}

func (CustomEvent) TableName() string { return TableCustomEvents }

// Performance is a row of page timings in milliseconds.
type Performance struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	ProjectID string  `gorm:"column:pid;not null;index:idx_perf_pid_created,priority:1"`
	Page      string  `gorm:"column:pg"`
	Host      string  `gorm:"column:host"`
	Device    string  `gorm:"column:dv"`
	Browser   string  `gorm:"column:br"`
	Country   string  `gorm:"column:cc"`
	Region    string  `gorm:"column:rg"`
	City      string  `gorm:"column:ct"`
	DNS       float64 `gorm:"column:dns"`
	TLS       float64 `gorm:"column:tls"`
	Conn      float64 `gorm:"column:conn"`
	Response  float64 `gorm:"column:response"`
	Render    float64 `gorm:"column:render"`
	DomLoad   float64 `gorm:"column:dom_load"`
	PageLoad  float64 `gorm:"column:page_load"`
	TTFB      float64 `gorm:"column:ttfb"`
	Created   int64   `gorm:"column:created;not null;index:idx_perf_pid_created,priority:2"`
}

func (Performance) TableName() string { return TablePerformance }

// ErrorEvent is a single occurrence of a client error.
type ErrorEvent struct {
	ID         string `gorm:"primaryKey"`
	ProjectID  string `gorm:"column:pid;not null;index:idx_errors_pid_created,priority:1;index:idx_errors_pid_eid,priority:1"`
	EID        string `gorm:"column:eid;not null;index:idx_errors_pid_eid,priority:2"`
	SessionID  string `gorm:"column:psid"`
	Name       string `gorm:"column:name"`
	Message    string `gorm:"column:message"`
	Filename   string `gorm:"column:filename"`
	Lineno     int64  `gorm:"column:lineno"`
	Colno      int64  `gorm:"column:colno"`
	StackTrace string `gorm:"column:stack_trace"`
	Page       string `gorm:"column:pg"`
	Locale     string `gorm:"column:lc"`
	Device     string `gorm:"column:dv"`
	Browser    string `gorm:"column:br"`
	OS         string `gorm:"column:os"`
	Country    string `gorm:"column:cc"`
	Region     string `gorm:"column:rg"`
	City       string `gorm:"column:ct"`
	Created    int64  `gorm:"column:created;not null;index:idx_errors_pid_created,priority:2"`
}

func (ErrorEvent) TableName() string { return TableErrors }

// ErrorStatus is the current resolution state of an error fingerprint.
type ErrorStatus struct {
	ProjectID string `gorm:"column:pid;primaryKey"`
	EID       string `gorm:"column:eid;primaryKey"`
	Status    string `gorm:"column:status;not null"`
	Updated   int64  `gorm:"column:updated;not null"`
}

func (ErrorStatus) TableName() string { return TableErrorStatuses }

const (
	TableAnalytics     = "analytics"
	TableCustomEvents  = "custom_events"
	TablePerformance   = "performance"
	TableErrors        = "errors"
	TableErrorStatuses = "error_statuses"
)

func models() []any {
	return []any{
		&Pageview{},
		&CustomEvent{},
		&Performance{},
		&ErrorEvent{},
		&ErrorStatus{},
	}
}
