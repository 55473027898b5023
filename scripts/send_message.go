package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/harunnryd/sapa/pkg/sapa"
	twiliotransport "github.com/harunnryd/sapa/pkg/transports/twilio"
	"github.com/spf13/viper"
)

type scriptConfig struct {
	Twilio twiliotransport.Config `mapstructure:"twilio"`
}

func main() {
	configPath := flag.String("config", "", "")
	envFile := flag.String("env", ".env", "")
	to := flag.String("to", "", "")
	body := flag.String("body", "", "")
	flag.Parse()
	if *to == "" || *body == "" {
		fmt.Println("usage: send_message -to=+923001234567 -body='...' [-config=...] [-env=.env]")
		os.Exit(1)
	}
	if err := sapa.LoadDotEnv(*envFile); err != nil {
		fmt.Println("dotenv error:", err)
		os.Exit(1)
	}
	cfg, err := loadTwilioConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if cfg.Twilio.WhatsAppNumber == "" {
		fmt.Println("TWILIO_WHATSAPP_NUMBER is empty")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sid, err := twiliotransport.NewSender(cfg.Twilio).Send(ctx, *to, *body)
	if err != nil {
		fmt.Println("send error:", err)
		os.Exit(1)
	}
	fmt.Println("message_sid:", sid)
}

func loadTwilioConfig(path string) (scriptConfig, error) {
	v := viper.New()
	for key, env := range map[string]string{
		"twilio.account_sid":     "TWILIO_ACCOUNT_SID",
		"twilio.auth_token":      "TWILIO_AUTH_TOKEN",
		"twilio.whatsapp_number": "TWILIO_WHATSAPP_NUMBER",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return scriptConfig{}, err
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return scriptConfig{}, err
		}
	}
	var cfg scriptConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return scriptConfig{}, err
	}
	return cfg, nil
}
