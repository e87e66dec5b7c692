package metrics

import (
	"github.com/gin-gonic/gin"
)

// Gin 返回 gin 中间件
//
// gin 在执行中间件之前就已完成路由，c.FullPath() 为空表示未命中任何路由。
// 需要记录 panic 请求时，把它挂在 gin.Recovery() 之后。
func (in *Instrumentor) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := Unmatched()
		if fp := c.FullPath(); fp != "" {
			route = Matched(fp)
		}

		st := in.begin(c.Request, route)
		if st == nil {
			c.Next()
			return
		}

		defer func() {
			fault := recover()
			in.finish(st, c.Request, outcome{
				route:         route,
				status:        c.Writer.Status(),
				written:       c.Writer.Written(),
				responseBytes: max(int64(c.Writer.Size()), 0),
				faulted:       fault != nil,
			})
			if fault != nil {
				panic(fault)
			}
		}()

		c.Next()
	}
}

// GinMiddleware 创建 Instrumentor 并返回其 gin 中间件
func GinMiddleware(cfg *Config, opts ...Option) (gin.HandlerFunc, error) {
	in, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return in.Gin(), nil
}
