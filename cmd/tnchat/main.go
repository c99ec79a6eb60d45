/******************************************************************************
 *
 *  Description :
 *
 *    Minimal interactive chat client: connects, logs in, attaches to the
 *    contact list and lets the user join a topic and exchange messages
 *    from the terminal.
 *
 *****************************************************************************/
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	jcr "github.com/tinode/jsonco"

	"github.com/tinode/gosdk/drafty"
	"github.com/tinode/gosdk/logs"
	"github.com/tinode/gosdk/tinode"
)

type configType struct {
	// Server base URL, e.g. "wss://api.tinode.co".
	Host string `json:"host"`
	// API key issued for this application.
	APIKey string `json:"api_key"`
	// Credentials for basic authentication.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type eventPrinter struct {
	tinode.BaseClientListener
}

func (eventPrinter) OnConnect(code int, reason string, params map[string]any) {
	ver, _ := params["ver"].(string)
	fmt.Printf("# %s (server v%s)\n", reason, ver)
}

func (eventPrinter) OnDisconnect(byServer bool, code int) {
	fmt.Printf("# disconnected (server=%v, code=%d)\n", byServer, code)
}

type topicPrinter struct {
	tinode.BaseTopicListener
	name string
}

func (p *topicPrinter) OnData(data *tinode.MsgServerData) {
	if data == nil {
		return
	}
	var content drafty.Document
	if err := json.Unmarshal(data.Content, &content); err != nil {
		return
	}
	fmt.Printf("[%s] %s: %s\n", p.name, data.From, content.ToPlainText())
}

func loadConfig(path string) (*configType, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config configType
	jr := jcr.New(file)
	if err = json.NewDecoder(jr).Decode(&config); err != nil {
		if jerr, ok := err.(*json.SyntaxError); ok {
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return nil, fmt.Errorf("syntax error in config at %d:%d: %w", lnum, cnum, err)
		}
		return nil, err
	}
	return &config, nil
}

func main() {
	conffile := flag.String("config", "tnchat.conf", "path to config file")
	host := flag.String("host", "", "server URL, overrides config")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logs.Init(*verbose)

	config, err := loadConfig(*conffile)
	if err != nil {
		log.Fatalln("Failed to read config file:", err)
	}
	if *host != "" {
		config.Host = *host
	}

	clnt := tinode.NewClient("tnchat", nil, eventPrinter{})
	defer clnt.Close()

	if _, err := clnt.Connect(config.Host, config.APIKey).WaitResult(); err != nil {
		log.Fatalln("Failed to connect:", err)
	}
	if _, err := clnt.LoginBasic(config.Login, config.Password).WaitResult(); err != nil {
		log.Fatalln("Failed to log in:", err)
	}

	me := clnt.GetMeTopic(nil)
	if _, err := me.Subscribe().WaitResult(); err != nil {
		log.Fatalln("Failed to attach to contact list:", err)
	}
	for _, t := range clnt.GetFilteredTopics(func(t *tinode.Topic) bool {
		return t.TopicType().Match(tinode.TopicTypeUser)
	}) {
		fmt.Printf("# contact %s (%d unread)\n", t.Name(), t.Unread())
	}

	var current *tinode.Topic
	fmt.Println("# /join <topic> to enter a topic, /quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/join "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if current != nil {
				current.Leave(false)
			}
			current = clnt.GetTopic(name)
			if current == nil {
				current = clnt.NewTopic(name, nil)
			}
			current.SetListener(&topicPrinter{name: name})
			if _, err := current.Subscribe().WaitResult(); err != nil {
				fmt.Println("# join failed:", err)
				current = nil
				continue
			}
			current.NoteRead()
			fmt.Println("# joined", current.Name())
		default:
			if current == nil {
				fmt.Println("# join a topic first")
				continue
			}
			if _, err := current.Publish(drafty.Parse(line)).WaitResult(); err != nil {
				fmt.Println("# send failed:", err)
			}
		}
	}
}
