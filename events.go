// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

type eventMessage struct {
	Status     int
	ObjectUUID string `json:"object_uuid"`
	EventType  string `json:"event_type"`
	Properties struct {
		Text string
	}
}

// arvadosClient adds a websocket event subscription to an Arvados
// API client.
type arvadosClient struct {
	*arvados.Client
	notifying map[string]map[chan<- eventMessage]int
	wantClose chan struct{}
	wsconn    *websocket.Conn
	mtx       sync.Mutex
}

func subscription(method, uuid string) map[string]interface{} {
	return map[string]interface{}{
		"method": method,
		"filters": [][]interface{}{
			{"object_uuid", "=", uuid},
			{"event_type", "in", []string{"stderr", "crunch-run", "update"}},
		},
	}
}

// Subscribe arranges for events about uuid to be sent to ch. Each
// Subscribe call must be matched by an Unsubscribe call.
func (client *arvadosClient) Subscribe(ch chan<- eventMessage, uuid string) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.notifying == nil {
		client.notifying = map[string]map[chan<- eventMessage]int{}
		client.wantClose = make(chan struct{})
		go client.runNotifier()
	}
	chmap := client.notifying[uuid]
	if chmap == nil {
		chmap = map[chan<- eventMessage]int{}
		client.notifying[uuid] = chmap
	}
	if len(chmap) == 0 && client.wsconn != nil {
		go json.NewEncoder(client.wsconn).Encode(subscription("subscribe", uuid))
	}
	chmap[ch]++
}

func (client *arvadosClient) Unsubscribe(ch chan<- eventMessage, uuid string) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	chmap := client.notifying[uuid]
	if n := chmap[ch] - 1; n > 0 {
		chmap[ch] = n
		return
	}
	delete(chmap, ch)
	if len(chmap) == 0 {
		delete(client.notifying, uuid)
		if client.wsconn != nil {
			go json.NewEncoder(client.wsconn).Encode(subscription("unsubscribe", uuid))
		}
	}
}

func (client *arvadosClient) Close() {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.notifying != nil {
		client.notifying = nil
		close(client.wantClose)
	}
}

func (client *arvadosClient) dial() (*websocket.Conn, error) {
	var cluster arvados.Cluster
	err := client.RequestAndDecode(&cluster, "GET", arvados.EndpointConfigGet.Path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("error getting cluster config: %w", err)
	}
	wsURL := cluster.Services.Websocket.ExternalURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/websocket"
	log.Debugf("connecting to websocket at %s", wsURL.String())
	wsURL.RawQuery = url.Values{"api_token": []string{client.AuthToken}}.Encode()
	return websocket.Dial(wsURL.String(), "", cluster.Services.Controller.ExternalURL.String())
}

// runNotifier maintains the websocket connection, reconnecting and
// resubscribing as needed, until Close is called.
func (client *arvadosClient) runNotifier() {
	for {
		conn, err := client.dial()
		if err != nil {
			log.Warnf("websocket connection error: %s", err)
			select {
			case <-client.wantClose:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		client.mtx.Lock()
		client.wsconn = conn
		var resubscribe []string
		for uuid := range client.notifying {
			resubscribe = append(resubscribe, uuid)
		}
		client.mtx.Unlock()
		go func() {
			enc := json.NewEncoder(conn)
			for _, uuid := range resubscribe {
				enc.Encode(subscription("subscribe", uuid))
			}
		}()

		dec := json.NewDecoder(conn)
		for {
			var msg eventMessage
			err := dec.Decode(&msg)
			select {
			case <-client.wantClose:
				conn.Close()
				return
			default:
			}
			if err != nil {
				log.Debugf("error decoding websocket message: %s", err)
				client.mtx.Lock()
				client.wsconn = nil
				client.mtx.Unlock()
				conn.Close()
				break
			}
			client.mtx.Lock()
			for ch := range client.notifying[msg.ObjectUUID] {
				go func(ch chan<- eventMessage) { ch <- msg }(ch)
			}
			client.mtx.Unlock()
		}
	}
}

// containerLogTail copies new lines from a running container's
// stderr log to our log.
type containerLogTail struct {
	client  *arvados.Client
	crUUID  string
	ctrUUID string
	offset  int64
	partial []byte
}

func (tail *containerLogTail) reset(crUUID, ctrUUID string) {
	tail.crUUID, tail.ctrUUID = crUUID, ctrUUID
	tail.offset = 0
	tail.partial = nil
}

// poll fetches any log data written since the last poll, and reports
// whether there was any.
func (tail *containerLogTail) poll() bool {
	if tail.ctrUUID == "" {
		return false
	}
	req, err := http.NewRequest("GET", "https://"+tail.client.APIHost+"/arvados/v1/container_requests/"+tail.crUUID+"/log/"+tail.ctrUUID+"/stderr.txt", nil)
	if err != nil {
		log.Errorf("error preparing log request: %s", err)
		return false
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", tail.offset))
	resp, err := tail.client.Do(req)
	if err != nil {
		log.Errorf("error getting log data: %s", err)
		return false
	}
	defer resp.Body.Close()
	if (resp.StatusCode == http.StatusNotFound && tail.offset == 0) ||
		(resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && tail.offset > 0) {
		return false
	} else if resp.StatusCode >= 300 {
		log.Errorf("error getting log data: %s", resp.Status)
		return false
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("error reading log data: %s", err)
		return false
	}
	tail.offset += int64(len(data))
	data = append(tail.partial, data...)
	any := false
	for {
		eol := bytes.IndexByte(data, '\n')
		if eol < 0 {
			break
		}
		if eol > 0 {
			log.Print(string(data[:eol]))
			any = true
		}
		data = data[eol+1:]
	}
	tail.partial = append([]byte(nil), data...)
	return any
}
