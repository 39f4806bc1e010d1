package ctxkeys

// TraceIDKey 上下文中追踪ID的键
type TraceIDKey struct{}

// PageIDKey 上下文中页面标识的键
type PageIDKey struct{}
