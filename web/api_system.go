package web

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	tfi18n "tradeforge/i18n"
	"tradeforge/storage"
)

// getVersion 版本信息
func (h *handler) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   Version,
		"go":        runtime.Version(),
		"strategy":  "sma_crossover",
		"languages": tfi18n.Supported(),
	})
}

// getHealth 健康检查
func (h *handler) getHealth(c *gin.Context) {
	status := http.StatusOK
	db := "disabled"
	if h.svc.Store != nil {
		db = "ok"
		if err := h.svc.Store.Ping(c.Request.Context()); err != nil {
			db = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{
		"success":  status == http.StatusOK,
		"database": db,
		"time":     time.Now().UTC(),
	})
}

// getRunStats 进程内回测统计
func (h *handler) getRunStats(c *gin.Context) {
	clients := 0
	if h.svc.Hub != nil {
		clients = h.svc.Hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"stats":             h.svc.Stats.Snapshot(),
		"websocket_clients": clients,
	})
}

// getSystemMetrics 最近一次系统采样，?hours=N 时附带历史数据
func (h *handler) getSystemMetrics(c *gin.Context) {
	if h.svc.System == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "metrics"})
		return
	}

	latest := h.svc.System.Last()
	if latest == nil {
		latest = h.svc.System.Collect()
	}
	resp := gin.H{"success": true, "latest": latest}

	if v := c.Query("hours"); v != "" && h.svc.Logs != nil {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			respondBadRequest(c, errInvalidQuery("hours", v))
			return
		}
		end := time.Now()
		history, err := h.svc.Logs.QuerySystemMetrics(end.Add(-time.Duration(hours)*time.Hour), end)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		resp["history"] = history
	}

	c.JSON(http.StatusOK, resp)
}

// getLogs 查询持久化日志
func (h *handler) getLogs(c *gin.Context) {
	if h.svc.Logs == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "storage"})
		return
	}

	params := storage.LogQueryParams{
		Level:   c.Query("level"),
		Keyword: c.Query("keyword"),
	}
	var err error
	if params.Limit, err = queryInt(c, "limit", 100); err != nil {
		respondBadRequest(c, err)
		return
	}
	if params.Offset, err = queryInt(c, "offset", 0); err != nil {
		respondBadRequest(c, err)
		return
	}
	for key, dst := range map[string]*time.Time{"start_time": &params.StartTime, "end_time": &params.EndTime} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondBadRequest(c, errInvalidQuery(key, v))
			return
		}
		*dst = t
	}

	logs, total, err := h.svc.Logs.GetLogs(params)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   total,
		"logs":    logs,
	})
}

// getLogStats 日志统计
func (h *handler) getLogStats(c *gin.Context) {
	if h.svc.Logs == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "storage"})
		return
	}
	stats, err := h.svc.Logs.GetLogStats()
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
