package wire

import "fmt"

func DataTopic(deviceID string) string    { return fmt.Sprintf("devices/%s/data", deviceID) }
func CommandTopic(deviceID string) string { return fmt.Sprintf("devices/%s/commands", deviceID) }
func AlertTopic(deviceID string) string   { return fmt.Sprintf("devices/%s/alerts", deviceID) }
