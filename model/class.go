package model

import "encoding/json"

// ObjectClass is the curated detector vocabulary. Anything outside it
// collapses to ClassUnknown.
type ObjectClass int

const (
	ClassUnknown ObjectClass = iota
	ClassPerson
	ClassBicycle
	ClassCar
	ClassMotorcycle
	ClassBus
	ClassTruck
	ClassBird
	ClassCat
	ClassDog
	ClassHorse
	ClassBackpack
	ClassUmbrella
	ClassHandbag
	ClassSuitcase
	ClassBottle
	ClassChair
	ClassLaptop
	ClassCellPhone
	ClassClock
)

var classNames = map[ObjectClass]string{
	ClassUnknown:    "unknown",
	ClassPerson:     "person",
	ClassBicycle:    "bicycle",
	ClassCar:        "car",
	ClassMotorcycle: "motorcycle",
	ClassBus:        "bus",
	ClassTruck:      "truck",
	ClassBird:       "bird",
	ClassCat:        "cat",
	ClassDog:        "dog",
	ClassHorse:      "horse",
	ClassBackpack:   "backpack",
	ClassUmbrella:   "umbrella",
	ClassHandbag:    "handbag",
	ClassSuitcase:   "suitcase",
	ClassBottle:     "bottle",
	ClassChair:      "chair",
	ClassLaptop:     "laptop",
	ClassCellPhone:  "cell phone",
	ClassClock:      "clock",
}

// COCO class index to vocabulary.
var cocoClasses = map[int]ObjectClass{
	0:  ClassPerson,
	1:  ClassBicycle,
	2:  ClassCar,
	3:  ClassMotorcycle,
	5:  ClassBus,
	7:  ClassTruck,
	14: ClassBird,
	15: ClassCat,
	16: ClassDog,
	17: ClassHorse,
	24: ClassBackpack,
	25: ClassUmbrella,
	26: ClassHandbag,
	28: ClassSuitcase,
	39: ClassBottle,
	56: ClassChair,
	63: ClassLaptop,
	67: ClassCellPhone,
	74: ClassClock,
}

func ClassFromCOCO(id int) ObjectClass {
	if c, ok := cocoClasses[id]; ok {
		return c
	}
	return ClassUnknown
}

func ClassFromName(name string) ObjectClass {
	for c, n := range classNames {
		if n == name {
			return c
		}
	}
	return ClassUnknown
}

func (c ObjectClass) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return "unknown"
}

func (c ObjectClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ObjectClass) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ClassFromName(s)
	return nil
}
