package xspan

// Kind Span 类型
type Kind int

// Span 类型取值与线上协议 SpanType 一致
const (
	KindEntry Kind = iota
	KindExit
	KindLocal
)

// String 返回 Kind 的名称
func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "Entry"
	case KindExit:
		return "Exit"
	case KindLocal:
		return "Local"
	default:
		return "Unknown"
	}
}

// Layer Span 所属的技术层
type Layer int

// 技术层取值与线上协议 SpanLayer 一致
const (
	LayerUnknown      Layer = 0
	LayerDB           Layer = 1
	LayerRPCFramework Layer = 2
	LayerHTTP         Layer = 3
	LayerMQ           Layer = 4
	LayerCache        Layer = 5
)

// String 返回 Layer 的名称
func (l Layer) String() string {
	switch l {
	case LayerDB:
		return "Database"
	case LayerRPCFramework:
		return "RPCFramework"
	case LayerHTTP:
		return "Http"
	case LayerMQ:
		return "MQ"
	case LayerCache:
		return "Cache"
	default:
		return "Unknown"
	}
}

// Component 产生 Span 的组件（库/框架）标识
type Component struct {
	ID   int
	Name string
}

// IsZero 报告是否未设置组件
func (c Component) IsZero() bool { return c.ID == 0 }

// 官方组件定义，id 由后端统一分配
var (
	ComponentUnknown        = Component{0, "Unknown"}
	ComponentTomcat         = Component{1, "Tomcat"}
	ComponentHTTPClient     = Component{2, "HttpClient"}
	ComponentDubbo          = Component{3, "Dubbo"}
	ComponentGRPC           = Component{23, "GRPC"}
	ComponentJedis          = Component{30, "Jedis"}
	ComponentMySQL          = Component{33, "mysql-connector-java"}
	ComponentPostgreSQL     = Component{37, "postgresql-jdbc-driver"}
	ComponentKafkaProducer  = Component{40, "kafka-producer"}
	ComponentKafkaConsumer  = Component{41, "kafka-consumer"}
	ComponentMongoDB        = Component{42, "mongodb-driver"}
	ComponentJdkHTTP        = Component{66, "JdkHttp"}
	ComponentPulsarProducer = Component{73, "pulsar-producer"}
	ComponentPulsarConsumer = Component{74, "pulsar-consumer"}
	ComponentJdkThreading   = Component{80, "JdkThreading"}
	ComponentClickHouse     = Component{119, "ClickHouse-jdbc-driver"}
	ComponentNats           = Component{132, "Nats"}
	ComponentGoHTTPServer   = Component{5004, "GoHttpServer"}
	ComponentGoHTTPClient   = Component{5005, "GoHttpClient"}
)
