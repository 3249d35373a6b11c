package api

// REST inspection surface for a running controller. Read only; every
// handler snapshots state through the engine's event loop.

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/contiv/ofroute/pkg/ofnet"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Default depth bound for alternate path enumeration
const maxAltHops = 8

type apiServer struct {
	ctrler *ofnet.Controller
}

// Create the http server for a controller and start serving on addr
func CreateServer(ctrler *ofnet.Controller, addr string) *http.Server {
	server := &apiServer{ctrler: ctrler}

	router := mux.NewRouter()
	router.HandleFunc("/status", server.statusGet).Methods("GET")
	router.HandleFunc("/topology", server.topologyGet).Methods("GET")
	router.HandleFunc("/hosts", server.hostsGet).Methods("GET")
	router.HandleFunc("/paths/{src}/{dst}", server.pathsGet).Methods("GET")

	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Infof("API server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("API server exited: %v", err)
		}
	}()

	return httpServer
}

func (self *apiServer) statusGet(w http.ResponseWriter, r *http.Request) {
	writeJson(w, self.ctrler.Status())
}

func (self *apiServer) topologyGet(w http.ResponseWriter, r *http.Request) {
	status := self.ctrler.Status()

	writeJson(w, map[string]interface{}{
		"switches":     status.GraphSwitches,
		"linkCount":    status.LinkCount,
		"connected":    status.Connected,
		"treeEdges":    status.TreeEdges,
		"blockedPorts": status.BlockedPorts,
	})
}

func (self *apiServer) hostsGet(w http.ResponseWriter, r *http.Request) {
	writeJson(w, self.ctrler.Status().LearnedHosts)
}

func (self *apiServer) pathsGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	src, err1 := strconv.ParseUint(vars["src"], 10, 64)
	dst, err2 := strconv.ParseUint(vars["dst"], 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "switch ids must be numeric", http.StatusBadRequest)
		return
	}

	writeJson(w, self.ctrler.Paths(src, dst, maxAltHops))
}

func writeJson(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Errorf("Error encoding response: %v", err)
	}
}
