package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/multitrack/pkg/audio/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

type playerFactoryWithPriority struct {
	Priority int
	PlayerPCMFactory
}

var (
	playerFactoryRegistry       = map[reflect.Type]playerFactoryWithPriority{}
	playerFactoryRegistryLocker sync.Mutex
)

func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	t := reflect.ValueOf(playerPCMFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	if _, ok := playerFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of PlayerPCM of type %v", t))
	}
	playerFactoryRegistry[t] = playerFactoryWithPriority{
		Priority:         priority,
		PlayerPCMFactory: playerPCMFactory,
	}
}

// PlayerFactories returns the registered factories, the highest priority first.
func PlayerFactories() []PlayerPCMFactory {
	playerFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []playerFactoryWithPriority
	for _, factory := range playerFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	playerFactoryRegistryLocker.Unlock()
	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []PlayerPCMFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.PlayerPCMFactory)
	}

	return factories
}
