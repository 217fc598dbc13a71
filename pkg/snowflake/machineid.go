// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snowflake

import (
	"context"
	"fmt"
	"sync"

	consulapi "github.com/hashicorp/consul/api"
	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/go-zookeeper/zk"
)

// MachineIDAllocator leases a small, process-lifetime-unique machine ID
// from a cluster coordinator so that multiple Pattern processes never
// generate colliding positions. A single process holds its lease for as
// long as it runs; a clean shutdown releases it.
type MachineIDAllocator interface {
	Allocate(ctx context.Context) (int64, error)
	Release(ctx context.Context) error
}

// staticAllocator is used in single-process deployments (tests, local
// dev) where no coordinator is configured.
type staticAllocator struct{ id int64 }

// Static returns an allocator that always hands back the given ID.
func Static(id int64) MachineIDAllocator { return staticAllocator{id: id} }

func (s staticAllocator) Allocate(context.Context) (int64, error) { return s.id, nil }
func (s staticAllocator) Release(context.Context) error           { return nil }

const leaseKeyPrefix = "pattern/machine-ids/"

// EtcdAllocator leases a machine ID slot (0..1023) via an etcd lease:
// it tries each slot's key in order and takes the first one it can
// create-if-absent, tying the key's lifetime to a renewed lease.
type EtcdAllocator struct {
	client *clientv3.Client
	mu     sync.Mutex
	leaseID clientv3.LeaseID
	slot    int64
}

// NewEtcdAllocator builds an allocator backed by an existing etcd client.
func NewEtcdAllocator(client *clientv3.Client) *EtcdAllocator {
	return &EtcdAllocator{client: client}
}

func (a *EtcdAllocator) Allocate(ctx context.Context) (int64, error) {
	lease, err := a.client.Grant(ctx, 30)
	if err != nil {
		return 0, fmt.Errorf("snowflake: etcd grant lease: %w", err)
	}
	for slot := int64(0); slot <= maxMachineID; slot++ {
		key := fmt.Sprintf("%s%d", leaseKeyPrefix, slot)
		txn := a.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, "held", clientv3.WithLease(lease.ID))).
			Else()
		resp, err := txn.Commit()
		if err != nil {
			return 0, fmt.Errorf("snowflake: etcd txn: %w", err)
		}
		if resp.Succeeded {
			a.mu.Lock()
			a.leaseID, a.slot = lease.ID, slot
			a.mu.Unlock()
			ch, err := a.client.KeepAlive(ctx, lease.ID)
			if err != nil {
				return 0, fmt.Errorf("snowflake: etcd keepalive: %w", err)
			}
			go func() {
				for range ch {
					// drain keepalive responses; lease renews automatically
				}
			}()
			return slot, nil
		}
	}
	return 0, fmt.Errorf("snowflake: etcd: no free machine id slots (0..%d all held)", maxMachineID)
}

func (a *EtcdAllocator) Release(ctx context.Context) error {
	a.mu.Lock()
	lease := a.leaseID
	a.mu.Unlock()
	if lease == 0 {
		return nil
	}
	_, err := a.client.Revoke(ctx, lease)
	return err
}

// ConsulAllocator leases a machine ID slot via a Consul session tied to
// a TTL check, the idiomatic Consul equivalent of an etcd lease.
type ConsulAllocator struct {
	client    *consulapi.Client
	sessionID string
}

// NewConsulAllocator builds an allocator backed by an existing Consul client.
func NewConsulAllocator(client *consulapi.Client) *ConsulAllocator {
	return &ConsulAllocator{client: client}
}

func (a *ConsulAllocator) Allocate(ctx context.Context) (int64, error) {
	session := a.client.Session()
	sessionID, _, err := session.Create(&consulapi.SessionEntry{
		Name: "pattern-machine-id",
		TTL:  "30s",
		Behavior: consulapi.SessionBehaviorRelease,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("snowflake: consul session create: %w", err)
	}
	a.sessionID = sessionID
	kv := a.client.KV()
	for slot := int64(0); slot <= maxMachineID; slot++ {
		key := fmt.Sprintf("%s%d", leaseKeyPrefix, slot)
		acquired, _, err := kv.Acquire(&consulapi.KVPair{
			Key:     key,
			Value:   []byte("held"),
			Session: sessionID,
		}, nil)
		if err != nil {
			return 0, fmt.Errorf("snowflake: consul acquire: %w", err)
		}
		if acquired {
			go session.RenewPeriodic("30s", sessionID, nil, ctx.Done())
			return slot, nil
		}
	}
	return 0, fmt.Errorf("snowflake: consul: no free machine id slots (0..%d all held)", maxMachineID)
}

func (a *ConsulAllocator) Release(ctx context.Context) error {
	if a.sessionID == "" {
		return nil
	}
	_, err := a.client.Session().Destroy(a.sessionID, nil)
	return err
}

// ZKAllocator leases a machine ID slot using ZooKeeper ephemeral
// znodes, one per slot, under leaseKeyPrefix; the first process to create
// a given slot's ephemeral node owns it until its session ends.
type ZKAllocator struct {
	conn *zk.Conn
	path string
}

// NewZKAllocator builds an allocator backed by an existing ZooKeeper connection.
func NewZKAllocator(conn *zk.Conn) *ZKAllocator {
	return &ZKAllocator{conn: conn}
}

func (a *ZKAllocator) Allocate(ctx context.Context) (int64, error) {
	root := "/" + leaseKeyPrefix[:len(leaseKeyPrefix)-1]
	exists, _, err := a.conn.Exists(root)
	if err != nil {
		return 0, fmt.Errorf("snowflake: zk exists %s: %w", root, err)
	}
	if !exists {
		if _, err := a.conn.Create(root, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return 0, fmt.Errorf("snowflake: zk create %s: %w", root, err)
		}
	}
	for slot := int64(0); slot <= maxMachineID; slot++ {
		path := fmt.Sprintf("%s/%d", root, slot)
		_, err := a.conn.Create(path, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
		if err == nil {
			a.path = path
			return slot, nil
		}
		if err != zk.ErrNodeExists {
			return 0, fmt.Errorf("snowflake: zk create %s: %w", path, err)
		}
	}
	return 0, fmt.Errorf("snowflake: zk: no free machine id slots (0..%d all held)", maxMachineID)
}

func (a *ZKAllocator) Release(ctx context.Context) error {
	if a.path == "" {
		return nil
	}
	return a.conn.Delete(a.path, -1)
}
