// Command site serves the stored sensor history as chart-ready JSON.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"furitingoasis/smart_irrigation/internal/models"
)

const (
	defaultPoints = 200
	maxPoints     = 2000
	chartTime     = "02:01:2006 15:04:05"
)

// chartPoint is one reading shaped for the history chart.
type chartPoint struct {
	Time        string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Moisture    float64 `json:"moisture"`
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP network address")
	dsn := flag.String("dsn", "./data/irrigation.db", "SQLite database file path")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := models.OpenDB(*dsn)
	if err != nil {
		logger.Error("open database", "dsn", *dsn, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	router := newRouter(&models.SensorRecordModel{DB: db}, &models.DailyTotalsModel{DB: db})
	logger.Info("starting history viewer", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newRouter(sensors models.SensorRecordModelInterface, daily models.DailyTotalsModelInterface) *gin.Engine {
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	// At most ?points= readings spread over the whole history.
	router.GET("/api/sensor_data", func(c *gin.Context) {
		points, err := strconv.Atoi(c.DefaultQuery("points", strconv.Itoa(defaultPoints)))
		if err != nil || points < 1 || points > maxPoints {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("points must be between 1 and %d", maxPoints)})
			return
		}

		recs, err := sensors.Sampled(c.Request.Context(), points)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying data: " + err.Error()})
			return
		}

		out := make([]chartPoint, 0, len(recs))
		for _, rec := range recs {
			out = append(out, chartPoint{
				Time:        rec.Timestamp.Format(chartTime),
				Temperature: rec.Data.Temperature,
				Humidity:    rec.Data.Humidity,
				Moisture:    rec.Data.Moisture,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	router.GET("/api/pump_time", func(c *gin.Context) {
		days, err := strconv.Atoi(c.DefaultQuery("days", "35"))
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive number"})
			return
		}
		totals, err := daily.Recent(c.Request.Context(), days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying daily totals: " + err.Error()})
			return
		}

		out := make([]gin.H, 0, len(totals))
		for _, t := range totals {
			out = append(out, gin.H{
				"date":        t.Date,
				"pumpMinutes": t.PumpOnTime.Minutes(),
				"lowMoisture": t.LowMoisture,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	return router
}
