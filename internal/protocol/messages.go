package protocol

// Payloads carry only what is needed to replay an event: ids and absolute
// values, never derived state.

// MOVE (both directions, unreliable)
type Move struct {
	EntityID EntityID   `json:"entity_id"`
	Pos      [3]float64 `json:"pos"`
	State    uint8      `json:"state"`
	Dir      [3]float64 `json:"dir"`
}

// ATTACK (both directions)
type Attack struct {
	EntityID EntityID   `json:"entity_id"`
	Pos      [3]float64 `json:"pos"`
	Dir      [3]float64 `json:"dir"`
}

// CHAT (both directions). Source is the display name filled in by the server.
type Chat struct {
	Text   string   `json:"text"`
	Source string   `json:"source"`
	ID     EntityID `json:"id"`
}

// EFFECT carries an opaque blob the simulation interprets.
type Effect struct {
	Data []byte `json:"data"`
}

// ADD_ENTITY (server -> client)
type AddEntity struct {
	EntityID EntityID   `json:"entity_id"`
	Pos      [3]float64 `json:"pos"`
	Data     []byte     `json:"data"`
}

// ADD_ENTITY_FINISH (server -> client): admit every pending AddEntity.
type AddEntityFinish struct{}

// REMOVE_ENTITY (server -> client)
type RemoveEntity struct {
	EntityID EntityID `json:"entity_id"`
}

// DAY_NIGHT (server -> client)
type DayNight struct {
	Time float64 `json:"time"`
}

// CHEST_ACCESS (both directions)
type ChestAccess struct {
	ContainerID EntityID `json:"container_id"`
	ActorID     EntityID `json:"actor_id"`
	Open        bool     `json:"open"`
}

// INVENTORY_TRANSFER (both directions)
type InventoryTransfer struct {
	FromID EntityID `json:"from_id"`
	ToID   EntityID `json:"to_id"`
	ItemID EntityID `json:"item_id"`
}

// ITEM_TRANSFER (both directions): drop to the ground or pick up.
type ItemTransfer struct {
	ItemID  EntityID `json:"item_id"`
	ActorID EntityID `json:"actor_id"`
	Drop    bool     `json:"drop"`
}

// EQUIP_ITEM (both directions)
type EquipItem struct {
	ItemID  EntityID `json:"item_id"`
	ActorID EntityID `json:"actor_id"`
	Equip   bool     `json:"equip"`
}

// SERVER_SAVE (client -> server request, server -> client notice)
type ServerSave struct{}

// RIGHT_CLICK (both directions)
type RightClick struct {
	ItemID  EntityID `json:"item_id"`
	ActorID EntityID `json:"actor_id"`
}

// ON_ACTIVATE (both directions)
type OnActivate struct {
	EntityID EntityID `json:"entity_id"`
	ActorID  EntityID `json:"actor_id"`
}

// PLAYER_SETUP (both directions). An empty Name in a reply means a fresh entity.
type PlayerSetup struct {
	ConnectionID ConnID `json:"connection_id"`
	Name         string `json:"name"`
}

// PLAYER_JOINED (server -> client)
type PlayerJoined struct {
	EntityID     EntityID `json:"entity_id"`
	ConnectionID ConnID   `json:"connection_id"`
}

// PING (both directions). SentTime is the requester clock in unix ms.
type Ping struct {
	ID              int   `json:"id"`
	SentTime        int64 `json:"sent_time"`
	RemainingRounds int   `json:"remaining_rounds"`
}

// GAME_WON (server -> client)
type GameWon struct{}

// PLAYER_SPEED (server -> client)
type PlayerSpeed struct {
	Speed float64    `json:"speed"`
	Spawn [3]float64 `json:"spawn"`
}

func (*Move) Kind() Kind              { return KindMove }
func (*Attack) Kind() Kind            { return KindAttack }
func (*Chat) Kind() Kind              { return KindChat }
func (*Effect) Kind() Kind            { return KindEffect }
func (*AddEntity) Kind() Kind         { return KindAddEntity }
func (*AddEntityFinish) Kind() Kind   { return KindAddEntityFinish }
func (*RemoveEntity) Kind() Kind      { return KindRemoveEntity }
func (*DayNight) Kind() Kind          { return KindDayNight }
func (*ChestAccess) Kind() Kind       { return KindChestAccess }
func (*InventoryTransfer) Kind() Kind { return KindInventoryTransfer }
func (*ItemTransfer) Kind() Kind      { return KindItemTransfer }
func (*EquipItem) Kind() Kind         { return KindEquipItem }
func (*ServerSave) Kind() Kind        { return KindServerSave }
func (*RightClick) Kind() Kind        { return KindRightClick }
func (*OnActivate) Kind() Kind        { return KindOnActivate }
func (*PlayerSetup) Kind() Kind       { return KindPlayerSetup }
func (*PlayerJoined) Kind() Kind      { return KindPlayerJoined }
func (*Ping) Kind() Kind              { return KindPing }
func (*GameWon) Kind() Kind           { return KindGameWon }
func (*PlayerSpeed) Kind() Kind       { return KindPlayerSpeed }

var factories = map[Kind]func() Payload{
	KindMove:              func() Payload { return &Move{} },
	KindAttack:            func() Payload { return &Attack{} },
	KindChat:              func() Payload { return &Chat{} },
	KindEffect:            func() Payload { return &Effect{} },
	KindAddEntity:         func() Payload { return &AddEntity{} },
	KindAddEntityFinish:   func() Payload { return &AddEntityFinish{} },
	KindRemoveEntity:      func() Payload { return &RemoveEntity{} },
	KindDayNight:          func() Payload { return &DayNight{} },
	KindChestAccess:       func() Payload { return &ChestAccess{} },
	KindInventoryTransfer: func() Payload { return &InventoryTransfer{} },
	KindItemTransfer:      func() Payload { return &ItemTransfer{} },
	KindEquipItem:         func() Payload { return &EquipItem{} },
	KindServerSave:        func() Payload { return &ServerSave{} },
	KindRightClick:        func() Payload { return &RightClick{} },
	KindOnActivate:        func() Payload { return &OnActivate{} },
	KindPlayerSetup:       func() Payload { return &PlayerSetup{} },
	KindPlayerJoined:      func() Payload { return &PlayerJoined{} },
	KindPing:              func() Payload { return &Ping{} },
	KindGameWon:           func() Payload { return &GameWon{} },
	KindPlayerSpeed:       func() Payload { return &PlayerSpeed{} },
}

// Kinds lists the catalogue in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindMove, KindAttack, KindChat, KindEffect, KindAddEntity, KindAddEntityFinish,
		KindRemoveEntity, KindDayNight, KindChestAccess, KindInventoryTransfer,
		KindItemTransfer, KindEquipItem, KindServerSave, KindRightClick, KindOnActivate,
		KindPlayerSetup, KindPlayerJoined, KindPing, KindGameWon, KindPlayerSpeed,
	}
}
