package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"tkgateway/internal/logger"
)

// Sample frames based on real device traffic, one group per dialect.
var samples = map[string][]string{
	"tk102": {
		"100406021359,+46702853880,GPRMC,021359.000,A,4103.7641,N,14244.9450,W,0.00,,060410,,,A*67,F,,imei:359586015829802,05,24.5,F:4.06V,1,135,45932,310,26,1234,5678\r\n",
	},
	"tk103-1": {
		"359586015829802\r\n",
		"100406021359,+46702853880,GPRMC,021359.000,A,4103.7641,N,14244.9450,W,12.30,87.5,060410,,,A*67,F,help me,imei:359586015829802,05,24.5,F:4.06V,0,135,45932\r\n",
	},
	"tk103-2": {
		"##,imei:359586015829802,A;",
		"imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,12.50,90.0;",
	},
	"tk103-3": {
		"(012345678901BP00359586015829802HSO)",
		"(012345678901BR00100406A2237.7514N11408.6214E045.5021359095.2000000101L0001E240)",
		"(012345678901BO012100406A2237.7514N11408.6214E000.0021359000.0000000000L0001E240)",
	},
	"tknano": {
		"*HQ,359586015829802,V1,121013,A,2234.0297,N,11405.9101,E,025.00,045,130610,FFFFFBFF#",
	},
}

func main() {
	addr := flag.String("addr", "127.0.0.1:31272", "gateway address")
	dialect := flag.String("dialect", "all", "dialect to send: tk102, tk103-1, tk103-2, tk103-3, tknano or all")
	interval := flag.Duration("interval", time.Second, "delay between frames")
	flag.Parse()

	log, err := logger.New("info", true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	names, err := dialects(*dialect)
	if err != nil {
		log.Error("nothing to send", zap.Error(err))
		return
	}

	for _, name := range names {
		if err := send(log, *addr, name, samples[name], *interval); err != nil {
			log.Error("simulation failed", zap.String("dialect", name), zap.Error(err))
		}
	}
}

// dialects resolves the -dialect flag to the sample groups to replay.
func dialects(name string) ([]string, error) {
	if name == "all" {
		return []string{"tk102", "tk103-1", "tk103-2", "tk103-3", "tknano"}, nil
	}
	if _, ok := samples[name]; !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return []string{name}, nil
}

// send replays frames on one connection, as a device would, and logs any
// acknowledgment the gateway returns.
func send(log *zap.Logger, addr, name string, frames []string, interval time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for _, frame := range frames {
		if _, err := conn.Write([]byte(frame)); err != nil {
			return err
		}
		log.Info("sent", zap.String("dialect", name), zap.String("frame", strings.TrimSpace(frame)))

		_ = conn.SetReadDeadline(time.Now().Add(interval))
		buf := make([]byte, 256)
		n, err := reader.Read(buf)
		if n > 0 {
			log.Info("ack", zap.String("dialect", name), zap.ByteString("data", buf[:n]))
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		time.Sleep(interval)
	}
	return nil
}
